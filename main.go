/**
 * peview
 * Copyright (c) 2019, Aidan Khoury. All rights reserved.
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
 *
 * @file main.go
 * @author Aidan Khoury (ajkhoury)
 * @date 11/13/2019
 */

package main

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"zombiezen.com/go/log"

	"peview/pkg/pe"
)

func main() {
	rootCommand := &cobra.Command{
		Use:           "peview",
		Short:         "Decode and print the headers of PE/COFF images.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	showDebug := rootCommand.PersistentFlags().Bool("debug", false, "show debugging output")
	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(*showDebug)
		return nil
	}

	rootCommand.AddCommand(
		newImageCommand("headers", "print the COFF and optional headers", printHeaders),
		newImageCommand("sections", "print the section table", printSections),
		newImageCommand("dirs", "print the data directory table", printDirectories),
		newImageCommand("debug", "print the debug directory and matching PDB", printDebug),
		newImageCommand("exports", "print the export directory", printExports),
	)

	if err := rootCommand.ExecuteContext(context.Background()); err != nil {
		initLogging(*showDebug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

// newImageCommand returns a subcommand that opens its single argument as
// a PE image and hands it to show.
func newImageCommand(name, short string, show func(io.Writer, *pe.PEFile) error) *cobra.Command {
	c := &cobra.Command{
		Use:                   name + " FILE",
		Short:                 short,
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runImage(cmd.Context(), cmd.OutOrStdout(), args[0], show)
	}
	return c
}

func runImage(ctx context.Context, out io.Writer, path string, show func(io.Writer, *pe.PEFile) error) error {
	f, err := pe.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Errorf(ctx, "%v", err)
		}
	}()
	log.Debugf(ctx, "Mapped %s (%d bytes, %v)", path, len(f.Bytes()), f.Machine())
	for _, w := range f.Warnings() {
		log.Warnf(ctx, "%s: %v", path, w)
	}
	return show(out, f)
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "peview: ", log.StdFlags, nil),
		})
	})
}
