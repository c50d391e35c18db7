package devtools

import (
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/hub"
)

// kindInterceptor gates one event family of the shared devtools connection.
// Install connects lazily on the first activation, so an agent started
// without a reachable webview only fails when capture is actually requested.
type kindInterceptor struct {
	client *Client
	kind   string
}

func (i *kindInterceptor) Install(h *hub.Hub) error {
	return i.client.enableKind(i.kind, h)
}

func (i *kindInterceptor) Uninstall() {
	i.client.disableKind(i.kind)
}

// RegisterInterceptors wires the client's three event families into the hub.
func RegisterInterceptors(h *hub.Hub, c *Client) {
	for _, kind := range []string{hub.KindConsole, hub.KindNetwork, hub.KindException} {
		h.SetInterceptor(kind, &kindInterceptor{client: c, kind: kind})
	}
}
