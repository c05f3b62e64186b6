// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash use unpadded standard base64. The package never stores or
// logs plaintext; it is used by the in-process provider and by the credential
// checks in the demo tooling.
package password
