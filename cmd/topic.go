package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/open3e-harness/addressing"
)

var topicCmd = &cobra.Command{
	Use:   "topic <ecu.did[.field...]>",
	Short: "Print the CLI argument and MQTT topic of an address",
	Args:  cobra.ExactArgs(1),
	RunE:  printTopic,
}

func init() {
	rootCmd.AddCommand(topicCmd)
}

func printTopic(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr, err := addressing.ParseAddress(args[0])
	if err != nil {
		return err
	}
	format, err := addressing.ParseTopicFormat(cfg.MQTT.TopicFormat)
	if err != nil {
		return err
	}
	topic, err := format.AddressTopic(addr)
	if err != nil {
		return err
	}
	published, err := format.SubDIDTopic(addr.ECU, addr.DID, addr.SubPath...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cli:       %s\n", addr.String())
	fmt.Fprintf(out, "command:   %s\n", cfg.MQTT.CommandTopic())
	fmt.Fprintf(out, "topic:     %s\n", addressing.JoinTopic(cfg.MQTT.BaseTopic, topic))
	if len(addr.SubPath) > 0 {
		fmt.Fprintf(out, "published: %s (sub-DID %s)\n",
			addressing.JoinTopic(cfg.MQTT.BaseTopic, published),
			strconv.Quote(addressing.SubDID(addr.DID, addr.SubPath...)))
	}
	return nil
}
