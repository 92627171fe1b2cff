// keytool is a small operator utility: it generates a passphrase-protected
// key pair record offline and can mint development session tokens. Nothing
// it produces contains a plaintext private key.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/cryptox"
	"github.com/envault/envault/internal/server/auth"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	userID := flag.String("user", "", "user id")
	secret := flag.String("secret", "", "JWT secret; when set, a development token is minted instead of a key record")
	validity := flag.Int("validity", 60, "token validity in minutes")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: keytool -user <id> [-secret <jwt-secret>]")
		os.Exit(2)
	}

	if *secret != "" {
		token, err := auth.GenerateToken(*userID, []byte(*secret), time.Duration(*validity)*time.Minute)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := generateKeyRecord(*userID, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type keyRecord struct {
	UserID              string `json:"user_id"`
	PublicKey           string `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

func generateKeyRecord(userID string, out *os.File) error {
	fmt.Fprintln(os.Stderr, "Enter passphrase")
	passphrase, err := readPassword(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	publicPEM, privatePEM, err := cryptox.GenerateKeyPair()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(privatePEM)

	derived := cryptox.DeriveKeyFromPassphrase(string(passphrase))
	defer common.WipeByteArray(derived[:])

	encryptedPrivate, err := cryptox.SymmetricEncrypt(privatePEM, derived[:])
	if err != nil {
		return err
	}

	record := keyRecord{
		UserID:              userID,
		PublicKey:           base64.StdEncoding.EncodeToString(publicPEM),
		EncryptedPrivateKey: base64.StdEncoding.EncodeToString(encryptedPrivate),
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
