// Package steps finds provisioning steps on disk and runs them.
//
// A repository lays steps out as
//
//	bootstrap/arch.sh
//	pillars/gaming/steam.sh
//	pillars/gaming/gamemode.wasm
//
// DirRegistry implements engine.StepRegistry over that tree. Runners
// implement engine.StepRunner:
//
//   - ScriptRunner runs .sh files locally with bash.
//   - WasmRunner runs .wasm files as WASI commands under wazero.
//   - RemoteRunner copies scripts to another machine over SFTP and runs them
//     over SSH.
//   - DryRunner only logs.
//
// Dispatcher picks the runner for a step from its file extension.
//
// Every runner reports a failed step as a failed outcome whose diagnostic is
// the tail of stderr, falling back to stdout. Steps see MYTHOS_STEP,
// MYTHOS_PILLAR and MYTHOS_ROOT in their environment.
package steps
