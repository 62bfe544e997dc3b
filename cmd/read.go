package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/open3e-harness/config"
	"github.com/kilianp07/open3e-harness/logger"
	"github.com/kilianp07/open3e-harness/open3e"
	"github.com/kilianp07/open3e-harness/process"
)

var (
	readRaw  bool
	writeRaw bool
)

var readCmd = &cobra.Command{
	Use:   "read <ecu.did[,ecu.did...]>",
	Short: "Read DIDs with a one-shot tool invocation",
	Args:  cobra.ExactArgs(1),
	RunE:  readDID,
}

var writeCmd = &cobra.Command{
	Use:   "write <ecu.did> <value>",
	Short: "Write a DID with a one-shot tool invocation",
	Args:  cobra.ExactArgs(2),
	RunE:  writeDID,
}

func init() {
	readCmd.Flags().BoolVar(&readRaw, "raw", false, "read the hex payload")
	writeCmd.Flags().BoolVar(&writeRaw, "raw", false, "write a hex payload instead of JSON")
	rootCmd.AddCommand(readCmd, writeCmd)
}

func newTool(cfg *config.Config) (*open3e.Tool, error) {
	return open3e.New(cfg.Tool, logger.New("open3e"))
}

func readDID(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tool, err := newTool(cfg)
	if err != nil {
		return err
	}
	var extra []string
	if readRaw {
		extra = append(extra, "--raw")
	}
	res, err := tool.ReadWithDIDString(ctx, args[0], extra...)
	return printResult(cmd, res, err)
}

func writeDID(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tool, err := newTool(cfg)
	if err != nil {
		return err
	}
	mode := "-j"
	if writeRaw {
		mode = "--raw"
	}
	res, err := tool.WriteWithDIDString(ctx, args[0], args[1], mode)
	return printResult(cmd, res, err)
}

func printResult(cmd *cobra.Command, res process.Result, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
	if res.Stderr != "" {
		fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
	}
	return nil
}
