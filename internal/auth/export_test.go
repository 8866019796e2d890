package auth

// LowerPasswordCost makes argon2id hashing cheap and returns a restore func.
func LowerPasswordCost() func() {
	prev := passwordParams
	passwordParams = argon2Params{memory: 1024, iterations: 1, parallelism: 1, keyLength: 32, saltLength: 16}
	return func() { passwordParams = prev }
}
