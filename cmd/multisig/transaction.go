package main

import (
	"github.com/spf13/cobra"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

var (
	psbt        string
	psbtFile    string
	txid        string
	amount      uint64
	fee         uint64
	recipient   string
	note        string
	allAccounts bool

	txCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "propose a new spend",
		Long: "this command stores the given psbt as a pending transaction " +
			"waiting for the signatures of the cosigners",
		RunE: txCreate,
	}
	txSignCmd = &cobra.Command{
		Use:   "sign",
		Short: "sign a psbt with the local cosigner key",
		Long: "this command adds the signature of the local cosigner to the " +
			"given psbt and stores it as a pending transaction",
		RunE: txSign,
	}
	txImportCmd = &cobra.Command{
		Use:   "import",
		Short: "import a psbt signed by other cosigners",
		Long: "this command merges the signatures of the given psbt into the " +
			"related pending transaction",
		RunE: txImport,
	}
	txBroadcastCmd = &cobra.Command{
		Use:   "broadcast",
		Short: "finalize and broadcast a fully signed psbt",
		Long: "this command finalizes the given psbt, merged with the related " +
			"pending transaction, and publishes it",
		RunE: txBroadcast,
	}
	txListCmd = &cobra.Command{
		Use:   "list",
		Short: "list the pending transactions",
		Long:  "this command returns the pending transactions of an account, or of all of them",
		RunE:  txList,
	}
	txDeleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "delete a pending transaction",
		Long:  "this command removes the pending transaction with the given txid",
		RunE:  txDelete,
	}
	txCmd = &cobra.Command{
		Use:   "tx",
		Short: "interact with the pending multisig transactions",
		Long: "this command lets you create, sign, import, broadcast, list or " +
			"delete pending multisig transactions",
	}
)

func init() {
	for _, cmd := range []*cobra.Command{
		txCreateCmd, txSignCmd, txImportCmd, txBroadcastCmd,
	} {
		cmd.Flags().StringVar(&psbt, "psbt", "", "base64 encoded psbt")
		cmd.Flags().StringVar(
			&psbtFile, "psbt-file", "", "path of a file containing the base64 psbt",
		)
	}
	for _, cmd := range []*cobra.Command{
		txCreateCmd, txSignCmd, txBroadcastCmd, txListCmd,
	} {
		cmd.Flags().Uint32Var(&accountIndex, "account-index", 0, "index of the account")
	}
	txCreateCmd.Flags().Uint64Var(&amount, "amount", 0, "spent amount in sats")
	txCreateCmd.Flags().Uint64Var(&fee, "fee", 0, "fee amount in sats")
	txCreateCmd.Flags().StringVar(&recipient, "recipient", "", "recipient address")
	txCreateCmd.Flags().StringVar(&note, "note", "", "free text note")
	txImportCmd.Flags().StringVar(
		&txid, "txid", "", "id of the pending transaction, looked up by psbt if missing",
	)
	txListCmd.Flags().BoolVar(
		&allAccounts, "all", false, "list the pending transactions of all accounts",
	)
	txDeleteCmd.Flags().StringVar(&txid, "txid", "", "id of the pending transaction")
	// nolint
	txDeleteCmd.MarkFlagRequired("txid")

	txCmd.AddCommand(
		txCreateCmd, txSignCmd, txImportCmd, txBroadcastCmd, txListCmd, txDeleteCmd,
	)
}

func txCreate(_ *cobra.Command, _ []string) error {
	psbtB64, err := readPsbt(psbt, psbtFile)
	if err != nil {
		return err
	}
	res, err := sendRequest(message.CreatePendingMultisigTx, message.CreatePendingTxRequest{
		AccountIndex: accountIndex,
		PsbtBase64:   psbtB64,
		Metadata: message.Metadata{
			Amount:    amount,
			Recipient: recipient,
			Fee:       fee,
			Note:      note,
		},
	})
	if err != nil {
		return err
	}
	return printResponse(res)
}

func txSign(_ *cobra.Command, _ []string) error {
	psbtB64, err := readPsbt(psbt, psbtFile)
	if err != nil {
		return err
	}
	res, err := sendRequest(message.SignMultisigTransaction, message.SignRequest{
		AccountIndex: accountIndex,
		PsbtBase64:   psbtB64,
	})
	if err != nil {
		return err
	}
	return printResponse(res)
}

func txImport(_ *cobra.Command, _ []string) error {
	psbtB64, err := readPsbt(psbt, psbtFile)
	if err != nil {
		return err
	}
	res, err := sendRequest(message.ImportPsbt, message.ImportPsbtRequest{
		Txid:       txid,
		PsbtBase64: psbtB64,
	})
	if err != nil {
		return err
	}
	return printResponse(res)
}

func txBroadcast(_ *cobra.Command, _ []string) error {
	psbtB64, err := readPsbt(psbt, psbtFile)
	if err != nil {
		return err
	}
	res, err := sendRequest(message.BroadcastMultisigTransaction, message.BroadcastRequest{
		AccountIndex: accountIndex,
		PsbtBase64:   psbtB64,
	})
	if err != nil {
		return err
	}
	return printResponse(res)
}

func txList(_ *cobra.Command, _ []string) error {
	req := message.GetPendingTxsRequest{}
	if !allAccounts {
		req.AccountIndex = &accountIndex
	}
	res, err := sendRequest(message.GetPendingMultisigTxs, req)
	if err != nil {
		return err
	}
	return printResponse(res)
}

func txDelete(_ *cobra.Command, _ []string) error {
	res, err := sendRequest(message.DeletePendingMultisigTx, message.DeletePendingTxRequest{
		Txid: txid,
	})
	if err != nil {
		return err
	}
	return printResponse(res)
}
