package protocol

import "encoding/json"

// envelope mirrors the common fields of every 115 JSON response. The service
// signals failure with state=false and reports the code under one of several
// historical keys, scanned in a fixed order.
type envelope struct {
	State   *bool  `json:"state"`
	ErrCode int    `json:"errcode"`
	ErrNo   int    `json:"errNo"`
	Errno   int    `json:"errno"`
	Code    int    `json:"code"`
	Error   string `json:"error"`
	ErrMsg  string `json:"error_msg"`
	Message string `json:"message"`
}

// errorCode returns the envelope's error code, 0 when the response reports
// success, or -1 when the response failed without a usable code.
func (e *envelope) errorCode() int {
	if e.State == nil || *e.State {
		return 0
	}

	for _, code := range []int{e.ErrCode, e.ErrNo, e.Errno, e.Code} {
		if code > 0 {
			return code
		}
	}

	return -1
}

// errorMessage returns the first non-empty message field.
func (e *envelope) errorMessage() string {
	for _, msg := range []string{e.Error, e.ErrMsg, e.Message} {
		if msg != "" {
			return msg
		}
	}

	return ""
}

// checkEnvelope inspects a response body for the 115 failure envelope.
// Returns nil for success responses; a classified *RemoteError otherwise.
// Bodies that are not a JSON object (some endpoints answer bare arrays)
// are treated as success and left to the caller's decode.
func checkEnvelope(body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}

	code := env.errorCode()
	if code == 0 {
		return nil
	}

	return &RemoteError{
		Code:    code,
		Message: env.errorMessage(),
		Raw:     body,
		Err:     classifyCode(code),
	}
}
