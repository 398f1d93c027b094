package interpreter

// Frame represents a function call frame.
type Frame struct {
	FuncName   string // function name for this frame
	ReturnToIP int    // IP in caller to continue after return
	Base       int    // address of the frame block, 0 until enter allocates it
	Height     int    // operand stack height at the call
}
