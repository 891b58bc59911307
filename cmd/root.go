package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kelvinkbk/xavlink-sub001/internal/api"
	"github.com/kelvinkbk/xavlink-sub001/internal/client"
	"github.com/kelvinkbk/xavlink-sub001/internal/config"
	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/session"
	"github.com/kelvinkbk/xavlink-sub001/internal/storage"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for the xavlink client
var rootCmd = &cobra.Command{
	Use:   "xavlink",
	Short: "XavLink is the campus network client",
	Long:  `Command-line client for the XavLink campus network: feed, chats, and notifications kept live over the realtime channel.`,
	Example: `
  xavlink login --email me@stu.example.edu
  xavlink post --text "study group at 6?"
  xavlink watch --log-level debug`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version command
		if cmd.Name() == "version" {
			return nil
		}

		// Load configuration (use nil logger to avoid sync issues)
		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		// Override config with command line flags if specified
		flags := cmd.Flags()
		if flags.Changed("api-url") {
			cfg.API.BaseURL, _ = flags.GetString("api-url")
		}
		if flags.Changed("socket-url") {
			cfg.Realtime.SocketURL, _ = flags.GetString("socket-url")
		}
		if flags.Changed("log-level") {
			cfg.Logging.Level, _ = flags.GetString("log-level")
			_ = logger.UpdateLevel(cfg.Logging.Level) // nolint:errcheck
		}
		if flags.Changed("metrics-port") {
			portStr, _ := flags.GetString("metrics-port")
			cfg.Metrics.Port, _ = strconv.Atoi(portStr)
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		// Default behavior: show help when no subcommand is provided
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildClient wires the full client for a subcommand.
func buildClient(ctx context.Context) (*client.Client, error) {
	if cfgFile != "" {
		absPath, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfgFile = absPath
	}
	return client.New(ctx, cfg)
}

// fail prints the user-facing text of an error and exits.
func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", apperrors.UserText(err))
	os.Exit(1)
}

// init is automatically called before main(), sets up flags and subcommands
func init() {
	// Add persistent flags (inherited by all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")

	rootCmd.PersistentFlags().String("api-url", "", "Backend REST base URL")
	rootCmd.PersistentFlags().String("socket-url", "", "Realtime socket URL")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("metrics-port", "9187", "Port for Prometheus metrics server")

	// A simple version subcommand
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of the xavlink client",
		Long:  "Print the version number of the xavlink client along with build information",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")
	rootCmd.AddCommand(versionCmd)

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session on this device",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			c, err := buildClient(ctx)
			if err != nil {
				fail(err)
			}
			defer c.Close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			user, err := c.Session.Login(ctx, api.Credentials{Email: email, Password: password})
			if err != nil {
				fail(err)
			}
			fmt.Printf("Logged in as %s (%s)\n", user.Name, user.Email)
		},
	}
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password")
	_ = loginCmd.MarkFlagRequired("email")    // nolint:errcheck
	_ = loginCmd.MarkFlagRequired("password") // nolint:errcheck
	rootCmd.AddCommand(loginCmd)

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			c, err := buildClient(ctx)
			if err != nil {
				fail(err)
			}
			defer c.Close()

			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			user, err := c.Session.Register(ctx, api.Registration{Name: name, Email: email, Password: password})
			if err != nil {
				fail(err)
			}
			fmt.Printf("Welcome, %s! You are now logged in.\n", user.Name)
		},
	}
	registerCmd.Flags().String("name", "", "Display name")
	registerCmd.Flags().String("email", "", "Account email")
	registerCmd.Flags().String("password", "", "Account password")
	_ = registerCmd.MarkFlagRequired("name")     // nolint:errcheck
	_ = registerCmd.MarkFlagRequired("email")    // nolint:errcheck
	_ = registerCmd.MarkFlagRequired("password") // nolint:errcheck
	rootCmd.AddCommand(registerCmd)

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			c, err := buildClient(ctx)
			if err != nil {
				fail(err)
			}
			defer c.Close()

			wasAuthenticated := c.Session.State() == session.Authenticated
			if err := c.Session.Logout(); err != nil {
				fail(err)
			}
			if wasAuthenticated {
				fmt.Println("Logged out.")
			} else {
				fmt.Println("Not logged in; nothing to do.")
			}
		},
	}
	rootCmd.AddCommand(logoutCmd)

	postCmd := &cobra.Command{
		Use:   "post",
		Short: "Publish a post, optionally with an image",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			c, err := buildClient(ctx)
			if err != nil {
				fail(err)
			}
			defer c.Close()

			if c.Session.State() != session.Authenticated {
				fail(apperrors.UnauthorizedError("post"))
			}

			text, _ := cmd.Flags().GetString("text")
			imagePath, _ := cmd.Flags().GetString("image")

			imageURL := ""
			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					fail(err)
				}
				uploaded, err := c.API.Upload(ctx, "image", imagePath, f)
				_ = f.Close() // nolint:errcheck
				if err != nil {
					fail(err)
				}
				imageURL = uploaded.URL
			}

			post, err := c.API.CreatePost(ctx, text, imageURL)
			if err != nil {
				fail(err)
			}
			logger.Info("post published", zap.String("post_id", post.ID))
			fmt.Printf("Posted (%s)\n", post.ID)
		},
	}
	postCmd.Flags().String("text", "", "Post text")
	postCmd.Flags().String("image", "", "Path to an image to attach")
	_ = postCmd.MarkFlagRequired("text") // nolint:errcheck
	rootCmd.AddCommand(postCmd)

	themeCmd := &cobra.Command{
		Use:   "theme [light|dark]",
		Short: "Show or set the rendering theme stored on this device",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			c, err := buildClient(ctx)
			if err != nil {
				fail(err)
			}
			defer c.Close()

			if len(args) == 0 {
				theme, ok, err := c.Store.Get(storage.KeyTheme)
				if err != nil {
					fail(err)
				}
				if !ok {
					theme = "light"
				}
				fmt.Println(theme)
				return
			}

			theme := args[0]
			if theme != "light" && theme != "dark" {
				fail(apperrors.New(apperrors.ErrorTypeValidation, "BAD_THEME",
					"unknown theme "+theme).WithUserMessage("Theme must be light or dark."))
			}
			if err := c.Store.Set(storage.KeyTheme, theme); err != nil {
				fail(err)
			}
			fmt.Println("Theme set to", theme)
		},
	}
	rootCmd.AddCommand(themeCmd)

	rootCmd.AddCommand(newWatchCommand())
}
