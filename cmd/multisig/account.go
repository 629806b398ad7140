package main

import (
	"github.com/spf13/cobra"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

var (
	accountIndex uint32
	chain        uint32
	addressIndex int64

	accountListCmd = &cobra.Command{
		Use:   "list",
		Short: "list the multisig accounts",
		Long:  "this command returns the multisig accounts with their cosigners",
		RunE:  accountList,
	}
	accountDeriveCmd = &cobra.Command{
		Use:   "derive",
		Short: "derive an address of an account",
		Long: "this command derives the address at the given index, or the " +
			"next unused one if the index is not specified",
		RunE: accountDerive,
	}
	accountCmd = &cobra.Command{
		Use:   "account",
		Short: "interact with the multisig accounts",
		Long: "this command lets you list the multisig accounts and derive " +
			"their addresses",
	}
)

func init() {
	accountDeriveCmd.Flags().Uint32Var(
		&accountIndex, "account-index", 0, "index of the account",
	)
	accountDeriveCmd.Flags().Uint32Var(
		&chain, "chain", 0, "0 for receive, 1 for change addresses",
	)
	accountDeriveCmd.Flags().Int64Var(
		&addressIndex, "index", -1, "address index, next unused one if negative",
	)
	accountCmd.AddCommand(accountListCmd, accountDeriveCmd)
}

func accountList(_ *cobra.Command, _ []string) error {
	res, err := sendRequest(message.GetMultisigAccounts, nil)
	if err != nil {
		return err
	}
	return printResponse(res)
}

func accountDerive(_ *cobra.Command, _ []string) error {
	req := message.DeriveAddressRequest{
		AccountIndex: accountIndex,
		Chain:        chain,
	}
	if addressIndex >= 0 {
		index := uint32(addressIndex)
		req.Index = &index
	}

	res, err := sendRequest(message.DeriveMultisigAddress, req)
	if err != nil {
		return err
	}
	return printResponse(res)
}
