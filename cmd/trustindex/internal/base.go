/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package internal

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ConsoleLog is logging for console.
	ConsoleLog *logrus.Logger

	// Commands lists the registered sub commands.
	Commands []*Command

	exitStatus = 0
	exitMu     sync.Mutex
)

func init() {
	ConsoleLog = logrus.New()
	ConsoleLog.Out = os.Stderr
	ConsoleLog.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
}

// Command is a sub command of trustindex.
type Command struct {
	// Run runs the command, args are the arguments after the command flags.
	Run func(cmd *Command, args []string)

	// UsageLine is the one-line usage message, the first word is the command name.
	UsageLine string

	// Description is the short description shown in the command list.
	Description string

	// Long is the long message shown by 'trustindex help <command>'.
	Long string

	// Flag is the set of flags specific to this command.
	Flag flag.FlagSet
}

// Name returns the command name.
func (c *Command) Name() string {
	name := c.UsageLine
	if i := strings.Index(name, " "); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, " "); i >= 0 {
		name = name[:i]
	}
	return name
}

// Usage prints the usage of the command and exits.
func (c *Command) Usage() {
	fmt.Fprintf(os.Stderr, "usage: %s\n", c.UsageLine)
	if c.Long != "" {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(c.Long))
	}
	fmt.Fprintln(os.Stderr, "\nParams:")
	c.Flag.SetOutput(os.Stderr)
	c.Flag.PrintDefaults()
	SetExitStatus(2)
	Exit()
}

// Runnable reports whether the command can be run.
func (c *Command) Runnable() bool {
	return c.Run != nil
}

// SetExitStatus raises the process exit status.
func SetExitStatus(n int) {
	exitMu.Lock()
	if exitStatus < n {
		exitStatus = n
	}
	exitMu.Unlock()
}

// ExitStatus returns the current exit status.
func ExitStatus() int {
	exitMu.Lock()
	defer exitMu.Unlock()
	return exitStatus
}

// Exit exits with the current exit status.
func Exit() {
	os.Exit(ExitStatus())
}

// MainUsage prints the command list and exits.
func MainUsage() {
	fmt.Fprintf(os.Stderr, "trustindex is the operator tool of the trust registry index.\n\nUsage:\n\n\ttrustindex <command> [params]\n\nThe commands are:\n\n")
	for _, cmd := range Commands {
		fmt.Fprintf(os.Stderr, "\t%-10s %s\n", cmd.Name(), cmd.Description)
	}
	fmt.Fprintf(os.Stderr, "\nUse \"trustindex help <command>\" for more information about a command.\n")
	SetExitStatus(2)
	Exit()
}
