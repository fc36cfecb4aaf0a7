package app

// DevState is the readiness report served at /__dev/ready.
type DevState struct {
	OK        bool   `json:"ok"`
	State     string `json:"state"`
	Demo      string `json:"demo"`
	RenderSeq int    `json:"render_seq"`
	Rendered  bool   `json:"rendered"`
	Pending   bool   `json:"pending"`
	Error     string `json:"error"`
}

type demoRequest struct {
	Demo string `json:"demo"`
}
