package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

const (
	wsServerKey = "wsserver"
	tabIDKey    = "tab_id"
)

var (
	wsServer string
	tabID    int

	configSetCmd = &cobra.Command{
		Use:   "set",
		Short: "edit single CLI config entry",
		Long: "this command lets you customize a single configuration entry of " +
			"the multisig CLI",
		Args: cobra.ExactArgs(2),
		RunE: configSet,
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "edit multiple CLI config entries",
		Long: "this command lets you customize multiple configuration entries " +
			"of the multisig CLI",
		RunE: configInit,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "print or edit CLI configuration",
		Long: "this command lets you show or customize the configuration of " +
			"the multisig CLI",
		RunE: configPrint,
	}
)

func initialState() map[string]string {
	return map[string]string{
		wsServerKey: "ws://localhost:18100",
		tabIDKey:    "1000",
	}
}

func init() {
	configInitCmd.Flags().StringVar(
		&wsServer, "wsserver", initialState()[wsServerKey],
		"websocket url of the multisig daemon to connect to",
	)
	configInitCmd.Flags().IntVar(
		&tabID, "tab-id", 1000,
		"tab id the CLI identifies itself with, must not clash with the UI ones",
	)
	configCmd.AddCommand(configSetCmd, configInitCmd)
}

func configSet(_ *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	if _, ok := initialState()[key]; !ok {
		return fmt.Errorf("unknown config entry %s", key)
	}
	if key == tabIDKey {
		if id, err := strconv.Atoi(value); err != nil || id <= 0 {
			return fmt.Errorf("tab id must be a positive integer")
		}
	}

	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s %s has been set\n", key, value)
	return nil
}

func configInit(_ *cobra.Command, _ []string) error {
	if tabID <= 0 {
		return fmt.Errorf("tab id must be a positive integer")
	}
	if _, err := getState(); err != nil {
		return err
	}

	if err := setState(map[string]string{
		wsServerKey: wsServer,
		tabIDKey:    strconv.Itoa(tabID),
	}); err != nil {
		return err
	}

	fmt.Println("CLI has been configured")
	return nil
}

func configPrint(_ *cobra.Command, _ []string) error {
	state, err := getState()
	if err != nil {
		return err
	}

	buf, _ := json.MarshalIndent(state, "", "   ")
	fmt.Println(string(buf))
	return nil
}
