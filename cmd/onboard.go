package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// providerInfo describes how to auto-detect and default-configure a provider
// from environment variables during non-interactive onboarding.
type providerInfo struct {
	envKey    string // env var carrying the API key, e.g. GOCLAW_ANTHROPIC_API_KEY
	modelHint string // default model to use when none is configured
}

// providerMap drives auto-onboard's provider detection (canAutoOnboard,
// detectProvider) and the verify-step's model choice (verifyProviderConnectivity).
var providerMap = map[string]providerInfo{
	"openrouter": {envKey: "GOCLAW_OPENROUTER_API_KEY", modelHint: "anthropic/claude-sonnet-4-5-20250929"},
	"anthropic":  {envKey: "GOCLAW_ANTHROPIC_API_KEY", modelHint: "claude-sonnet-4-5-20250929"},
	"openai":     {envKey: "GOCLAW_OPENAI_API_KEY", modelHint: "gpt-4o"},
	"groq":       {envKey: "GOCLAW_GROQ_API_KEY", modelHint: "llama-3.3-70b-versatile"},
	"deepseek":   {envKey: "GOCLAW_DEEPSEEK_API_KEY", modelHint: "deepseek-chat"},
	"gemini":     {envKey: "GOCLAW_GEMINI_API_KEY", modelHint: "gemini-2.0-flash"},
	"mistral":    {envKey: "GOCLAW_MISTRAL_API_KEY", modelHint: "mistral-large-latest"},
	"xai":        {envKey: "GOCLAW_XAI_API_KEY", modelHint: "grok-3-mini"},
	"minimax":    {envKey: "GOCLAW_MINIMAX_API_KEY", modelHint: "MiniMax-M2.5"},
	"cohere":     {envKey: "GOCLAW_COHERE_API_KEY", modelHint: "command-a"},
	"perplexity": {envKey: "GOCLAW_PERPLEXITY_API_KEY", modelHint: "sonar-pro"},
}

// onboardGenerateToken returns a random hex token of n random bytes.
func onboardGenerateToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is unavailable — nothing
		// sensible to do but surface it loudly rather than hand back a weak token.
		panic(fmt.Sprintf("onboard: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// runOnboard sets up a fresh config.json. Single-operator deployments are
// configured entirely from environment variables (no interactive wizard —
// goclaw targets unattended/Docker-first bootstrap); if no provider API key
// is present in the environment, it tells the operator what to set and exits.
func runOnboard() {
	cfgPath := resolveConfigPath()
	if canAutoOnboard() {
		if !runAutoOnboard(cfgPath) {
			os.Exit(1)
		}
		return
	}

	fmt.Println("No provider API key found in the environment.")
	fmt.Println()
	fmt.Println("Set one of the following and re-run:")
	for name, pi := range providerMap {
		fmt.Printf("  %s=...   (%s)\n", pi.envKey, name)
	}
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  GOCLAW_ANTHROPIC_API_KEY=sk-ant-... ./goclaw onboard")
	os.Exit(1)
}

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Generate config.json from environment-provided provider credentials",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}
