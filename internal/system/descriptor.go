package system

// Layer describes the architectural slice a service belongs to.
type Layer string

const (
	LayerIngress Layer = "ingress"
	LayerEngine  Layer = "engine"
	LayerData    Layer = "data"
	LayerEgress  Layer = "egress"
)

// Descriptor advertises a service's placement and capabilities. It does not
// change runtime behavior; it lets the health surface and operators reason
// about what is running.
type Descriptor struct {
	Name         string
	Layer        Layer
	Capabilities []string
}

func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}
