package keys_test

import "github.com/Hussein-Mazeh/vaultlock/krypto"

func generatePair() (pub, priv []byte, err error) {
	return krypto.GenerateRSAKeyPair()
}
