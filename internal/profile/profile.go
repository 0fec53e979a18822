// Package profile resolves the requested hardware profile into the compute
// service variant to run.
//
// The stack ships one LLM runtime service per hardware flavor (CPU-only,
// NVIDIA GPU, AMD GPU) plus a "none" profile for pointing the stack at an
// LLM runtime already running on the host. The profile is resolved exactly
// once, early, into a plain Variant value; nothing downstream branches on
// the profile again.
package profile

import "fmt"

// Profile selects which compute backend variant of the stack is active.
type Profile string

const (
	ProfileNone      Profile = "none"
	ProfileCPU       Profile = "cpu"
	ProfileGPUNvidia Profile = "gpu-nvidia"
	ProfileGPUAMD    Profile = "gpu-amd"
)

// Variant is the resolved compute service variant for one run.
type Variant struct {
	// ComposeProfile is the compose profile selecting the compute service
	// definition. Empty means no compute service is started at all.
	ComposeProfile string

	// ExtraEnv holds additional settings the variant requires. For the
	// "none" profile this is the host alias that routes the stack's LLM
	// traffic to the runtime running outside the project.
	ExtraEnv map[string]string

	// PullJob is the variant's one-shot model pre-fetch service. Empty for
	// the "none" profile, whose models live outside the project.
	PullJob string
}

// UnknownProfileError reports a profile selector outside the supported set.
type UnknownProfileError struct {
	Requested string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown profile %q (expected one of %s, %s, %s, %s)",
		e.Requested, ProfileNone, ProfileCPU, ProfileGPUNvidia, ProfileGPUAMD)
}

// Resolve maps a requested profile to its variant. Unknown values are an
// error, never a silent default.
func Resolve(requested string) (Variant, error) {
	switch Profile(requested) {
	case ProfileCPU:
		return Variant{ComposeProfile: "cpu", PullJob: "ollama-pull-llama-cpu"}, nil
	case ProfileGPUNvidia:
		return Variant{ComposeProfile: "gpu-nvidia", PullJob: "ollama-pull-llama-gpu"}, nil
	case ProfileGPUAMD:
		return Variant{ComposeProfile: "gpu-amd", PullJob: "ollama-pull-llama-gpu-amd"}, nil
	case ProfileNone:
		// No in-project compute service; the model runtime is expected on
		// the host, reachable from containers via the engine's host alias.
		return Variant{
			ExtraEnv: map[string]string{
				"OLLAMA_HOST": "host.docker.internal:11434",
			},
		}, nil
	default:
		return Variant{}, &UnknownProfileError{Requested: requested}
	}
}
