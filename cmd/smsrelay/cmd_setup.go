package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/smsrelay/internal/config"
	"github.com/user/smsrelay/internal/phone"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("SMS Relay Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// Chat platforms; at least one is required
		cfg.Discord.Token = prompt(scanner, "Discord bot token (optional)", cfg.Discord.Token)
		if cfg.Discord.Token != "" {
			cfg.Discord.GuildID = prompt(scanner, "Discord guild ID for command registration (optional)", cfg.Discord.GuildID)
		}
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		// SMS gateway
		cfg.Twilio.DryRun = promptBool(scanner, "Dry run (log texts instead of sending)", cfg.Twilio.DryRun)
		if !cfg.Twilio.DryRun {
			cfg.Twilio.AccountSID = prompt(scanner, "Twilio account SID", cfg.Twilio.AccountSID)
			cfg.Twilio.AuthToken = prompt(scanner, "Twilio auth token", cfg.Twilio.AuthToken)
			for {
				from := prompt(scanner, "Twilio sender number", cfg.Twilio.FromNumber)
				normalised, err := phone.Sender(from)
				if err == nil {
					cfg.Twilio.FromNumber = normalised
					break
				}
				fmt.Println("  Not a valid phone number, try again.")
				if from == cfg.Twilio.FromNumber {
					break
				}
			}
		}

		// Signup window
		timeout := prompt(scanner, "Signup timeout (minutes)", strconv.Itoa(cfg.Signup.TimeoutMinutes))
		if n, err := strconv.Atoi(timeout); err == nil && n > 0 {
			cfg.Signup.TimeoutMinutes = n
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if err := cfg.Validate(); err != nil {
			fmt.Println("Warning:", err)
		}
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func promptBool(scanner *bufio.Scanner, label string, defaultVal bool) bool {
	def := "n"
	if defaultVal {
		def = "y"
	}
	switch strings.ToLower(prompt(scanner, label+" (y/n)", def)) {
	case "y", "yes", "true":
		return true
	default:
		return false
	}
}
