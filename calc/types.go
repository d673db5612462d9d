package calc

// HomeResponse is the payload of GET /.
type HomeResponse struct {
	Message string `json:"message"`
}

// AddRequest is the payload of POST /add. Both operands are optional.
type AddRequest struct {
	A *Number `json:"a,omitempty"`
	B *Number `json:"b,omitempty"`
}

// Operands returns a and b, substituting 0 for each operand that is missing.
func (r *AddRequest) Operands() (a, b Number) {
	return valueOrZero(r.A), valueOrZero(r.B)
}

func valueOrZero(n *Number) Number {
	if n == nil {
		return Int(0)
	}
	return *n
}

// AddResponse is the payload returned by POST /add.
type AddResponse struct {
	Result Number `json:"result"`
}
