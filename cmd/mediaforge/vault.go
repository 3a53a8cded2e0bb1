package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/artpar/mediaforge/internal/core/format"
	"github.com/artpar/mediaforge/internal/core/vault"
)

// =============================================================================
// vault
// =============================================================================

func vaultCmd(args []string, cfg *Config, logger *slog.Logger) error {
	if len(args) == 0 {
		vaultUsage()
		return errUsage
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "init":
		return vaultInitCmd(rest, cfg)
	case "open":
		return vaultOpenCmd(rest)
	case "add":
		return vaultAddCmd(rest)
	case "list":
		return vaultListCmd(rest)
	case "get":
		return vaultGetCmd(rest)
	case "rm":
		return vaultRmCmd(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown vault subcommand: %s\n", sub)
		vaultUsage()
		return errUsage
	}
}

func vaultUsage() {
	fmt.Fprint(os.Stderr, `Usage:
  mediaforge vault init <vault-file>
  mediaforge vault open <vault-file>
  mediaforge vault add <vault-file> <file-or-dir> [...]
  mediaforge vault list <vault-file>
  mediaforge vault get <vault-file> <name-or-prefix/> [-out dir]
  mediaforge vault rm <vault-file> <name-or-prefix/>
`)
}

// vaultOpenCmd runs an interactive session against one vault. Staged paths
// are only encrypted into the file on "update".
func vaultOpenCmd(args []string) error {
	if len(args) != 1 {
		vaultUsage()
		return errUsage
	}
	v, err := openVault(args[0])
	if err != nil {
		return err
	}

	fmt.Println("Vault open. Commands: ls, add <path>, update, extract <name> <dest>, delete <name>, exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("vault> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "ls":
			for _, e := range v.List() {
				fmt.Printf("%s %10s\n", format.TruncateName(e.Name, 48), format.Bytes(e.Size))
			}
			if staged := v.Staged(); len(staged) > 0 {
				fmt.Println("Staged:")
				for _, s := range staged {
					fmt.Println("  " + s)
				}
			}
		case "add":
			if len(fields) != 2 {
				fmt.Println("usage: add <path>")
				continue
			}
			err = v.Stage(fields[1])
		case "update":
			err = v.Commit()
			if err == nil {
				fmt.Println("Vault updated.")
			}
		case "extract":
			if len(fields) != 3 {
				fmt.Println("usage: extract <name-or-prefix/> <dest-dir>")
				continue
			}
			var names []string
			names, err = v.Extract(fields[1], fields[2])
			for _, n := range names {
				fmt.Printf("Extracted %s\n", n)
			}
		case "delete":
			if len(fields) != 2 {
				fmt.Println("usage: delete <name-or-prefix/>")
				continue
			}
			var names []string
			names, err = v.Delete(fields[1])
			for _, n := range names {
				fmt.Printf("Removed %s\n", n)
			}
		case "exit", "quit":
			return nil
		default:
			fmt.Println("unknown command: " + fields[0])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func vaultInitCmd(args []string, cfg *Config) error {
	if len(args) != 1 {
		vaultUsage()
		return errUsage
	}
	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	if err := vault.Create(args[0], password, cfg.Vault.Iterations); err != nil {
		return err
	}
	fmt.Printf("Vault created: %s\n", args[0])
	return nil
}

func vaultAddCmd(args []string) error {
	if len(args) < 2 {
		vaultUsage()
		return errUsage
	}
	v, err := openVault(args[0])
	if err != nil {
		return err
	}
	for _, path := range args[1:] {
		if err := v.Stage(path); err != nil {
			return err
		}
	}
	if err := v.Commit(); err != nil {
		return err
	}
	fmt.Printf("Stored %d item(s).\n", len(args[1:]))
	return nil
}

func vaultListCmd(args []string) error {
	if len(args) != 1 {
		vaultUsage()
		return errUsage
	}
	v, err := openVault(args[0])
	if err != nil {
		return err
	}
	entries := v.List()
	if len(entries) == 0 {
		fmt.Println("Vault is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s %10s\n", format.TruncateName(e.Name, 48), format.Bytes(e.Size))
	}
	return nil
}

func vaultGetCmd(args []string) error {
	fs := flag.NewFlagSet("vault get", flag.ContinueOnError)
	out := fs.String("out", ".", "Directory to extract into")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 2 {
		vaultUsage()
		return errUsage
	}
	v, err := openVault(fs.Arg(0))
	if err != nil {
		return err
	}
	extracted, err := v.Extract(fs.Arg(1), *out)
	if err != nil {
		return err
	}
	for _, name := range extracted {
		fmt.Printf("Extracted %s\n", name)
	}
	return nil
}

func vaultRmCmd(args []string) error {
	if len(args) != 2 {
		vaultUsage()
		return errUsage
	}
	v, err := openVault(args[0])
	if err != nil {
		return err
	}
	removed, err := v.Delete(args[1])
	if err != nil {
		return err
	}
	for _, name := range removed {
		fmt.Printf("Removed %s\n", name)
	}
	return nil
}

func openVault(path string) (*vault.Vault, error) {
	password, err := promptPassword("Password: ")
	if err != nil {
		return nil, err
	}
	return vault.Open(path, password)
}

// promptPassword reads a password without echo when stdin is a terminal.
// MEDIAFORGE_VAULT_PASSWORD overrides the prompt for scripted use.
func promptPassword(prompt string) (string, error) {
	if pw := os.Getenv("MEDIAFORGE_VAULT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	// Piped input
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptNewPassword() (string, error) {
	password, err := promptPassword("New password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	if os.Getenv("MEDIAFORGE_VAULT_PASSWORD") != "" || !term.IsTerminal(int(os.Stdin.Fd())) {
		return password, nil
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}
