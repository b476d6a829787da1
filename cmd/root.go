/*
Package cmd implements the command-line interface for agentsdk. It runs the
session engine behind an HTTP server, an interactive terminal chat, or an
MCP server exposing the memory tools.
*/
package cmd

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/app"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

var (
	projectName     = "agentsdk"
	cfgFile         string
	openaiAPIKey    string
	anthropicAPIKey string

	rootCmd = &cobra.Command{
		Use:   "agentsdk",
		Short: "Conversational agent engine with sessions and long-term memory",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the CLI.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)

	rootCmd.PersistentFlags().StringVar(
		&openaiAPIKey,
		"openai-api-key",
		os.Getenv("OPENAI_API_KEY"),
		"API key for the OpenAI runner",
	)

	rootCmd.PersistentFlags().StringVar(
		&anthropicAPIKey,
		"anthropic-api-key",
		os.Getenv("ANTHROPIC_API_KEY"),
		"API key for the Anthropic runner",
	)
}

/*
initConfig reads the config file. A --config path that exists on disk is used
as is; otherwise the named file is looked up in ~/.agentsdk, seeded from the
embedded default on first run. Environment variables prefixed AGENTSDK_
override file values.
*/
func initConfig() {
	viper.SetEnvPrefix(projectName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if filepath.IsAbs(cfgFile) || CheckFileExists(cfgFile) {
		viper.SetConfigFile(cfgFile)
	} else {
		dir := configDir()

		if err := writeConfig(dir, cfgFile); err != nil {
			log.Fatal("failed to write config", "error", err)
		}

		viper.SetConfigFile(filepath.Join(dir, cfgFile))
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("failed to read config", "error", err)
	}

	for env, value := range map[string]string{
		"OPENAI_API_KEY":    openaiAPIKey,
		"ANTHROPIC_API_KEY": anthropicAPIKey,
	} {
		if value != "" {
			_ = os.Setenv(env, value)
		}
	}
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+projectName)
}

/*
writeConfig copies the embedded default for name into dir unless a file by
that name is already there.
*/
func writeConfig(dir, name string) error {
	target := filepath.Join(dir, name)

	if CheckFileExists(target) {
		return nil
	}

	data, err := fs.ReadFile(embedded, "cfg/"+name)

	if err != nil {
		return fmt.Errorf("no default config named %s: %w", name, err)
	}

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err = os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("wrote config file", "path", target)
	return nil
}

func CheckFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

// loadConfig reads the engine configuration from viper.
func loadConfig() (app.Config, error) {
	return app.LoadConfig(viper.GetViper())
}

var longRoot = `
agentsdk runs language-model agents for live sessions. It keeps every
conversation, compresses what the agent sees to a token budget, remembers
what users tell it across conversations, and streams replies and tool calls
back to the connected client in order.
`
