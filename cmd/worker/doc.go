// Command tee-rng-worker derives an enclave-bound NEAR identity, registers it
// with the tee-rng contract once the account is funded, and then answers
// pending randomness requests until interrupted.
package main
