package pgstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/store/pgstore"
	"github.com/sharon232323/bidmate/internal/store/storetest"
	"github.com/sharon232323/bidmate/internal/utils"
)

func TestStore(t *testing.T) {
	st := pgstore.New(utils.SetupTestPostgres(t))
	require.NoError(t, st.InitSchema(context.Background()))

	storetest.Run(t, st)
}
