package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"querycore/pkg/config"
)

// setup interactively writes a starter configuration file. The API key is
// read without echo and stored as an environment reference, not a literal.
func setup(configPath string) error {
	reader := bufio.NewReader(os.Stdin)

	backend, err := promptChoice(reader, "Provider backend", []string{"anthropic", "openai", "ollama", "google"})
	if err != nil {
		return err
	}

	fmt.Print("Model (empty for the backend default): ")
	model, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading model: %w", err)
	}
	model = strings.TrimSpace(model)

	cfg := config.Config{
		Provider: config.ProviderConfig{
			Backend: backend,
			Model:   model,
		},
	}

	if backend == "ollama" {
		fmt.Print("Ollama host (empty for http://localhost:11434): ")
		host, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading host: %w", err)
		}
		cfg.Provider.Host = strings.TrimSpace(host)
	} else {
		envVar := apiKeyEnvVar(backend)
		if err := captureAPIKey(envVar); err != nil {
			return err
		}
		cfg.Provider.APIKey = fmt.Sprintf("${%s}", envVar)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	if err := os.WriteFile(configPath, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}

	fmt.Printf("Wrote %s. Defaults apply for every omitted section.\n", configPath)
	return nil
}

// captureAPIKey reads the key without echo and tells the user how to
// export it. The key never lands in the config file.
func captureAPIKey(envVar string) error {
	if os.Getenv(envVar) != "" {
		fmt.Printf("%s is already set, keeping it.\n", envVar)
		return nil
	}

	fmt.Printf("API key (stored only in %s, input hidden): ", envVar)
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading API key: %w", err)
	}
	if len(key) == 0 {
		return fmt.Errorf("empty API key")
	}

	fmt.Printf("Add to your shell profile:\n  export %s=<the key you just entered>\n", envVar)
	return nil
}

func apiKeyEnvVar(backend string) string {
	switch backend {
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

func promptChoice(reader *bufio.Reader, label string, choices []string) (string, error) {
	for {
		fmt.Printf("%s (%s): ", label, strings.Join(choices, "/"))
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		for _, c := range choices {
			if answer == c {
				return c, nil
			}
		}
		fmt.Println("unrecognized choice")
	}
}
