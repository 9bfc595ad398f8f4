package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reachforge/outreachd/internal/linkedinq"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a random access token",
	Long:  `Generate an unguessable token suitable for the api_key setting.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(linkedinq.NewToken())
	},
}
