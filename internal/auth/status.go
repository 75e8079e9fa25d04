package auth

// CheckStatus is the account status gate. It runs strictly before any
// credential comparison so that a guessed password never reveals whether it
// would have matched on a locked account. Locked takes precedence over
// disabled when both flags are set.
func CheckStatus(a *Account) error {
	if a.Locked {
		return ErrAccountLocked
	}
	if a.Disabled {
		return ErrAccountDisabled
	}
	return nil
}
