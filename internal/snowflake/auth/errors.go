package auth

import "errors"

var (
	// ErrConfig marks invalid or incomplete credential configuration.
	// It is returned from NewProvider, never from Issue.
	ErrConfig = errors.New("invalid credential configuration")

	// ErrCrypto marks key loading or signing failures.
	ErrCrypto = errors.New("key load or signing failure")

	// ErrPassphraseRequired indicates the private key is encrypted and no
	// passphrase was configured. Issue returns it wrapped together with
	// ErrCrypto so errors.Is matches either sentinel.
	ErrPassphraseRequired = errors.New("private key passphrase required")
)
