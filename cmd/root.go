/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stash.kopano.io/kwm/kwmdatachannel/version"
)

// RootCmd provides the commandline parser root.
var RootCmd = &cobra.Command{
	Use:   "kwmdatachanneld",
	Short: "Peer to peer WebRTC data channel client and API server",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(2)
	},
}

// CommandVersion provides the version sub command.
func CommandVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Version    : %s\n", version.Version)
			fmt.Printf("Build date : %s\n", version.BuildDate)
		},
	}
}
