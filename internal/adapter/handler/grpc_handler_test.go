package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/bloodbank/internal/core/domain"
)

func newGRPCClient(t *testing.T, app *testApp) *AdminClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(AuthInterceptor(app.auth)))
	srv.RegisterService(&AdminServiceDesc, NewGRPCHandler(app.services.Fulfillment, app.services.Inventory, zap.NewNop()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewAdminClient(conn)
}

func bearer(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestGRPC_FulfillAndList(t *testing.T) {
	app := newTestApp(t)
	client := newGRPCClient(t, app)
	adminToken := app.login(t, "admin", true)

	ctx := context.Background()
	_, err := app.store.UpsertInventory(ctx, domain.BloodTypeAPos, 10)
	require.NoError(t, err)
	user, err := app.auth.Register(ctx, "alice", "", "pw")
	require.NoError(t, err)
	req, err := app.store.CreateRequest(ctx, user.ID, domain.BloodTypeAPos, 3)
	require.NoError(t, err)

	updated, err := client.Fulfill(bearer(adminToken), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusFulfilled, updated.Status)

	list, err := client.ListInventory(bearer(adminToken))
	require.NoError(t, err)
	require.Len(t, list.Records, 1)
	assert.Equal(t, 7, list.Records[0].UnitsAvailable)

	_, err = client.Fulfill(bearer(adminToken), req.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.Deny(bearer(adminToken), 999)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_Auth(t *testing.T) {
	app := newTestApp(t)
	client := newGRPCClient(t, app)
	userToken := app.login(t, "alice", false)

	_, err := client.ListInventory(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.ListInventory(bearer("not-a-token"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.ListInventory(bearer(userToken))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
