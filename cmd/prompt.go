package cmd

import (
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-filediff/pkg/pathsync"
)

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}

// newConfirmer returns the gate used before each change category. With
// autoYes every category is approved without asking.
func newConfirmer(autoYes, dryRun bool) pathsync.Confirmer {
	if autoYes || dryRun {
		return pathsync.AlwaysConfirm
	}
	return func(c pathsync.Category, count int) bool {
		return PromptForConfirmation(fmt.Sprintf("Apply %d %s?", count, c), true)
	}
}

// confirm asks prompt unless autoYes is set.
func confirm(autoYes bool, prompt string, defaultYes bool) bool {
	if autoYes {
		return true
	}
	return PromptForConfirmation(prompt, defaultYes)
}
