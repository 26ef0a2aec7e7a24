package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cloud115 "github.com/cloud115/cloud115-go"
	"github.com/cloud115/cloud115-go/internal/config"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the credential cookies",
		Long: `Store the UID, CID, and SEID session cookies in the config file.

Copy the cookie header from a logged-in browser session and pass it with
--cookies, or supply each value individually. With no flags, the cookie
string is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("cookies", "", `browser cookie string ("UID=...; CID=...; SEID=...")`)
	cmd.Flags().String("uid", "", "UID cookie value")
	cmd.Flags().String("cid", "", "CID cookie value")
	cmd.Flags().String("seid", "", "SEID cookie value")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cred, err := credentialFromFlags(cmd)
	if err != nil {
		return err
	}

	path := configPath()

	// Preserve any existing network tuning in the file.
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	cfg.UID = cred.UID
	cfg.CID = cred.CID
	cfg.SEID = cred.SEID

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	statusf("Credentials saved to %s\n", path)

	return nil
}

// credentialFromFlags assembles the credential from --cookies, from the
// individual flags, or from a cookie string on stdin.
func credentialFromFlags(cmd *cobra.Command) (cloud115.Credential, error) {
	cookies, _ := cmd.Flags().GetString("cookies")
	if cookies != "" {
		return cloud115.ParseCookies(cookies)
	}

	uid, _ := cmd.Flags().GetString("uid")
	cid, _ := cmd.Flags().GetString("cid")
	seid, _ := cmd.Flags().GetString("seid")

	if uid != "" || cid != "" || seid != "" {
		cred := cloud115.Credential{UID: uid, CID: cid, SEID: seid}
		if err := cred.Valid(); err != nil {
			return cloud115.Credential{}, err
		}

		return cred, nil
	}

	fmt.Fprint(os.Stderr, "Paste cookie string: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return cloud115.Credential{}, errors.New("no cookie string provided")
	}

	return cloud115.ParseCookies(strings.TrimSpace(line))
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored credential identity",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runWhoami(_ *cobra.Command, _ []string) error {
	cfg, err := config.Resolve(configPath())
	if err != nil {
		return err
	}

	cred := cloud115.Credential{UID: cfg.UID, CID: cfg.CID, SEID: cfg.SEID}
	if err := cred.Valid(); err != nil {
		return fmt.Errorf("%w (run 'cloud115 login' first)", err)
	}

	// The UID cookie starts with the numeric account ID.
	userID, _, _ := strings.Cut(cfg.UID, "_")
	fmt.Printf("User ID: %s\n", userID)
	fmt.Printf("Config:  %s\n", configPath())

	return nil
}
