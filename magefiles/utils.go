//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

type cmdOptions struct {
	args   []string
	env    []string
	stream bool
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = args
	}
}

// withEnv appends KEY=VALUE pairs to the inherited environment.
func withEnv(kv ...string) cmdOption {
	return func(o *cmdOptions) {
		o.env = append(o.env, kv...)
	}
}

func withStream() cmdOption {
	return func(o *cmdOptions) {
		o.stream = true
	}
}

// executeCmd runs command and returns its combined output. Output is echoed
// when streaming was requested or mage runs with -v.
func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	words := make([]string, 0, len(opts.env)+1+len(opts.args))
	words = append(words, opts.env...)
	words = append(words, command)
	words = append(words, opts.args...)
	line := strings.Join(words, " ")
	fmt.Printf("Executing: %s\n", line)

	cmd := exec.Command(command, opts.args...)
	if len(opts.env) > 0 {
		cmd.Env = append(os.Environ(), opts.env...)
	}

	var out bytes.Buffer
	echo := mg.Verbose() || opts.stream
	if echo {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	if err := cmd.Run(); err != nil {
		if !echo {
			fmt.Fprintf(os.Stderr, "%s failed:\n%s", line, out.String())
		}
		return "", fmt.Errorf("%s: %w", command, err)
	}
	return out.String(), nil
}
