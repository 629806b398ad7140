package main

import (
	"github.com/spf13/cobra"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

var (
	mnemonic    string
	addressType string
	accountNum  uint32

	walletGenSeedCmd = &cobra.Command{
		Use:   "genseed",
		Short: "generate a random mnemonic",
		Long: "this command lets you generate a new random mnemonic to use as " +
			"the seed of the local cosigner key",
		RunE: walletGenSeed,
	}
	walletUnlockCmd = &cobra.Command{
		Use:   "unlock",
		Short: "unlock the wallet",
		Long: "this command lets you unlock the local cosigner key with your " +
			"mnemonic, it stays in memory until locked or the daemon restarts",
		RunE: walletUnlock,
	}
	walletLockCmd = &cobra.Command{
		Use:   "lock",
		Short: "lock the wallet",
		Long:  "this command lets you wipe the local cosigner key from memory",
		RunE:  walletLock,
	}
	walletXpubCmd = &cobra.Command{
		Use:   "xpub",
		Short: "get the account xpub of the local cosigner",
		Long: "this command returns the account xpub, master fingerprint and " +
			"derivation path to share with the other cosigners",
		RunE: walletXpub,
	}
	walletCmd = &cobra.Command{
		Use:   "wallet",
		Short: "interact with the local cosigner key",
		Long: "this command lets you generate, unlock or lock the local " +
			"cosigner key and export its account xpub",
	}
)

func init() {
	walletUnlockCmd.Flags().StringVar(
		&mnemonic, "mnemonic", "", "space separated word list",
	)
	// nolint
	walletUnlockCmd.MarkFlagRequired("mnemonic")
	walletXpubCmd.Flags().StringVar(
		&addressType, "address-type", "p2wsh",
		"one of p2wsh, p2sh-p2wsh, p2sh",
	)
	walletXpubCmd.Flags().Uint32Var(&accountNum, "account", 0, "account number")

	walletCmd.AddCommand(
		walletGenSeedCmd, walletUnlockCmd, walletLockCmd, walletXpubCmd,
	)
}

func walletGenSeed(_ *cobra.Command, _ []string) error {
	res, err := sendRequest(message.GenSeed, nil)
	if err != nil {
		return err
	}
	return printResponse(res)
}

func walletUnlock(_ *cobra.Command, _ []string) error {
	res, err := sendRequest(message.UnlockWallet, message.UnlockWalletRequest{
		Mnemonic: mnemonic,
	})
	if err != nil {
		return err
	}
	return printResponse(res)
}

func walletLock(_ *cobra.Command, _ []string) error {
	res, err := sendRequest(message.LockWallet, nil)
	if err != nil {
		return err
	}
	return printResponse(res)
}

func walletXpub(_ *cobra.Command, _ []string) error {
	res, err := sendRequest(message.GetAccountXpub, message.GetAccountXpubRequest{
		AddressType: addressType,
		Account:     accountNum,
	})
	if err != nil {
		return err
	}
	return printResponse(res)
}
