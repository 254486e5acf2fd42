package main

import "flag"

// Options holds CLI options for the link client.
type Options struct {
	ConfigPath string
	// HostMode runs the built-in echo host instead of the client. It exists
	// for loopback testing against a real listener.
	HostMode bool
	// Prompt, when set, is sent once after negotiation; the streamed reply
	// is printed to stdout and the process exits.
	Prompt    string
	System    string
	MaxTokens int
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("mdai-link", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.BoolVar(&opts.HostMode, "host", false, "Run the built-in echo host")
	fs.StringVar(&opts.Prompt, "prompt", "", "Send one prompt and print the streamed reply")
	fs.StringVar(&opts.System, "system", "", "Optional system prompt for -prompt")
	fs.IntVar(&opts.MaxTokens, "max-tokens", 0, "Token budget for -prompt (0 = host default)")
	_ = fs.Parse(args)
	return opts
}
