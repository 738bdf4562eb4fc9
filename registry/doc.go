// Package registry is the worker's view of the tee-rng contract.
//
// Contract wraps the four contract methods the worker uses. Reads
// (get_worker, get_pending_requests) go through a cross-checked reader, so a
// single lying or lagging endpoint cannot make the worker act. Writes
// (register_worker, respond) are signed transactions.
//
// Registrar performs the one-time registration at startup:
//
//  1. If the contract already knows the worker account, nothing happens.
//  2. Otherwise it waits until the account has been funded.
//  3. It requests a TDX quote whose report data is the worker public key,
//     uploads it to the collateral service and registers with the quote,
//     collateral, checksum and TCB info.
//  4. If any part of step 3 fails it registers with placeholder arguments
//     and logs loudly that the registration is unattested.
//  5. It reads the record back. A missing record is ErrRegistrationInconsistent.
package registry
