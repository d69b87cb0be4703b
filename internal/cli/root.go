package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the release version, overridden at build time with -ldflags
var Version = "0.3.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "medrights",
	Short: "MedRights - patient rights answers with citations and proof traces",
	Long: `MedRights answers questions about patient rights in India from two
source documents: the NHRC Charter of Patients' Rights (2019) and the IMC
Professional Conduct, Etiquette and Ethics Regulations (2002).

Every answer is assembled from fixed templates and cites the clauses it is
built from. Nothing is generated: the same question always gets the same
answer, and the proof trace shows which intents and clauses produced it.

MedRights is not legal advice.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version of MedRights and of the embedded data files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "medrights v%s\n", Version)

		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "data %s (knowledge/intents/templates)\n", snap.Version)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.medrights/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("knowledge", "", "knowledge base JSON file (default: embedded)")
	flags.String("intents", "", "intent rules YAML file (default: embedded)")
	flags.String("templates", "", "response templates YAML file (default: embedded)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("data.knowledge_path", flags.Lookup("knowledge"))
	_ = viper.BindPFlag("data.intents_path", flags.Lookup("intents"))
	_ = viper.BindPFlag("data.templates_path", flags.Lookup("templates"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and MEDRIGHTS_* variables
func initConfig() {
	// A missing .env is normal
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".medrights"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// MEDRIGHTS_SERVER_ADDR sets server.addr
	viper.SetEnvPrefix("MEDRIGHTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
	}
}
