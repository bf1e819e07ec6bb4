package common

// Key codes used by the viewer loop. Values match GLFW key codes, which use
// ASCII for printable keys.
const (
	KeyEsc = 256
	KeyP   = 80 // toggle multi-sampling
	KeyR   = 82 // reset camera
	KeyL   = 76 // simulate context loss
	KeyK   = 75 // restore context
	KeyT   = 84 // cycle transparency mode
)

// Mouse buttons as reported by GLFW.
const (
	MouseButtonLeft  = 0
	MouseButtonRight = 1
)
