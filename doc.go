// Package multiauth keeps several cached identities on one device, exactly
// one of them active, and stays consistent with an external auth provider
// that emits its own session-change events at any time.
//
// The package is safe for concurrent use after [Builder.Build] and
// [Orchestrator.Init]. Explicit operations ([Orchestrator.Login],
// [Orchestrator.SwitchAccount], [Orchestrator.Logout],
// [Orchestrator.ForgetAccount]) always win over provider events: each one
// takes a generation number and commits only if no newer operation started,
// and events caused by an operation are fenced off by their sequence number.
//
// # Architecture boundaries
//
// multiauth is the public surface. Persistence lives in accounts, vault and
// kv; role and tenant resolution in resolver, backed by a directory
// (directory/postgres or directory/memory); error classification in
// failure. The provider package defines the auth provider contract and
// provider/memprovider is an in-process implementation for tests and the
// demo.
//
// # What this package must NOT do
//
//   - Return a session from one identity's slot to another identity.
//   - Leak raw provider or directory errors to users; see [UserMessage].
//   - Hold its state mutex across provider, resolver or storage calls.
package multiauth
