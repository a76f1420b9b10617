package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"

	"github.com/agoranet/agora/src/agora"
	"github.com/agoranet/agora/src/crypto/keys"
	"github.com/spf13/cobra"
)

var (
	privKeyFile           string
	pubKeyFile            string
	defaultPrivateKeyFile = fmt.Sprintf("%s/priv_key", _config.Agora.DataDir)
	defaultPublicKeyFile  = fmt.Sprintf("%s/key.pub", _config.Agora.DataDir)
)

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", defaultPrivateKeyFile, "Output file for the private key")
	cmd.Flags().StringVar(&pubKeyFile, "pub", defaultPublicKeyFile, "Output file for the public key")
}

func keygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("A key already exists under %s, not overwriting", path.Dir(privKeyFile))
	}

	if err := os.MkdirAll(path.Dir(privKeyFile), 0700); err != nil {
		return fmt.Errorf("Saving private key: %s", err)
	}

	key, err := agora.Keygen(privKeyFile)
	if err != nil {
		return fmt.Errorf("Saving private key: %s", err)
	}

	fmt.Printf("Private key saved to: %s\n", privKeyFile)

	if err := os.MkdirAll(path.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("Saving public key: %s", err)
	}

	pub := keys.PublicKeyHex(&key.PublicKey)

	if err := ioutil.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("Saving public key: %s", err)
	}

	fmt.Printf("Public key saved to: %s\n", pubKeyFile)

	return nil
}
