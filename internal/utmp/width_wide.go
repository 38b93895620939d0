//go:build arm64 || riscv64 || loong64

package utmp

// Native is the layout glibc writes on this architecture.
const Native = Wide
