package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fantiadl/pkg/auth"
	"fantiadl/pkg/ui"
)

var loginCookiesFile string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Fantia sessions",
	Long: `Manage stored Fantia session cookies securely.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your session cookie or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [label]",
	Short: "Store a Fantia session cookie securely",
	Long: `Store a Fantia session cookie in the system keychain or encrypted file.

To get the cookie value:
1. Log into fantia.jp in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies > https://fantia.jp
4. Copy the _session_id value

Alternatively, export your browser cookies to a Netscape-format cookies.txt
and pass it with --cookies-file.`,
	Example: `  # Interactive login, prompted for the cookie value
  fantiadl auth login

  # Store under a label
  fantiadl auth login alt-account

  # Import from a cookies.txt export
  fantiadl auth login --cookies-file cookies.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// authShowCmd represents the auth show command
var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored sessions",
	Long:  `List stored Fantia sessions with the cookie value masked.`,
	RunE:  runShow,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [label]",
	Short: "Remove a stored session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(logoutCmd)

	loginCmd.Flags().StringVar(&loginCookiesFile, "cookies-file", "", "import the session from a Netscape cookies.txt file")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	label := auth.DefaultLabel
	if len(args) == 1 {
		label = args[0]
	}

	var sessionID string
	var err error
	if loginCookiesFile != "" {
		sessionID, err = auth.ParseCookiesFile(loginCookiesFile)
	} else {
		sessionID, err = auth.PromptSessionID()
	}
	if err != nil {
		return err
	}

	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	if err := manager.Store(&auth.Session{Label: label, SessionID: sessionID}); err != nil {
		return err
	}

	ui.PrintInfo("Session stored", label)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	sessions, err := manager.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions. Run 'fantiadl auth login' to add one.")
		return nil
	}

	for _, session := range sessions {
		s := auth.SanitizeSession(session)
		fmt.Fprintf(os.Stdout, "%-16s %s  (modified %s)\n",
			s.Label, s.SessionID, s.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	label := auth.DefaultLabel
	if len(args) == 1 {
		label = args[0]
	}

	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	if err := manager.Delete(label); err != nil {
		return err
	}

	ui.PrintInfo("Session removed", label)
	return nil
}
