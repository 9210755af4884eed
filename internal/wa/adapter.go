package wa

import (
	"context"
	"fmt"

	"github.com/gfranca/leadflow/internal/session"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
// It is the pipeline's only contact with the wire transport.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
	session   string
}

// NewAdapter creates a new transport adapter for the given session.
func NewAdapter(ctx context.Context, sessionName string, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("LeadFlow", [3]uint32{0, 1, 0})

	dbPath := session.TransportDBPath(sessionName)

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create transport store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	return &Adapter{
		client:    client,
		container: container,
		logger:    logger,
		session:   sessionName,
	}, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connect initiates the transport connection.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to transport")
	return a.client.Connect()
}

// Disconnect terminates the transport connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from transport")
	a.client.Disconnect()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// SendText sends a text message to the given protocol address. Returns the
// server message ID.
func (a *Adapter) SendText(ctx context.Context, address string, text string) (string, error) {
	to, err := types.ParseJID(address)
	if err != nil {
		return "", fmt.Errorf("parse address: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// GetQRChannel returns the QR channel for pairing. Must be called before
// Connect.
func (a *Adapter) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if a.IsLoggedIn() {
		return nil, fmt.Errorf("already logged in")
	}
	ch, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	return ch, nil
}

// PhoneNumber returns the operator's phone number from the device store, or
// empty string before pairing.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// ResolveLID resolves a LID JID to its phone number JID using the device
// store mapping. Returns the original JID if it's not a LID or if resolution
// fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
