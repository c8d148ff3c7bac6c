// Command qvarnd wires configuration, the object store, loaded resource
// types, the notification engine and the HTTP route synthesizer into a
// running server. Grounded on the teacher's cmd entrypoint idiom: decode
// config, open storage, install middleware, serve.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/vaultit/qvarn-go/authn"
	"github.com/vaultit/qvarn-go/config"
	"github.com/vaultit/qvarn-go/csql"
	"github.com/vaultit/qvarn-go/logging"
	"github.com/vaultit/qvarn-go/notify"
	"github.com/vaultit/qvarn-go/resourcetype"
	"github.com/vaultit/qvarn-go/router"
	"github.com/vaultit/qvarn-go/store"
)

func main() {
	logging.Init(logrus.InfoLevel)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("qvarnd: loading config: %v", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("qvarnd: opening store: %v", err)
	}

	types, err := resourcetype.LoadResourceTypes(cfg.ResourceTypeDir)
	if err != nil {
		log.Fatalf("qvarnd: loading resource types: %v", err)
	}
	resourceTypeType, err := resourceTypeResourceType()
	if err != nil {
		log.Fatalf("qvarnd: %v", err)
	}
	notificationType, err := notificationResourceType()
	if err != nil {
		log.Fatalf("qvarnd: %v", err)
	}
	listenerType, err := listenerResourceType()
	if err != nil {
		log.Fatalf("qvarnd: %v", err)
	}
	types = append(types, resourceTypeType, notificationType)

	eng := notify.NewEngine(st)
	if cfg.KafkaBrokers != "" {
		eng.Publisher = notify.NewKafkaPublisher(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
	}

	srv := router.NewServer(st, eng, types, listenerType, cfg.BaseURL, cfg.EnableFineGrainedAccessControl)

	if err := st.WithTransaction(ctx, func(tx store.Tx) error {
		return srv.BootstrapResourceTypes(tx)
	}); err != nil {
		log.Fatalf("qvarnd: bootstrapping resource types: %v", err)
	}

	mx := mux.NewRouter()
	logging.AddRequestID(mx)
	srv.Register(mx)

	if cfg.TokenPublicKey != "" {
		key, err := parseRSAPublicKey(cfg.TokenPublicKey)
		if err != nil {
			log.Fatalf("qvarnd: parsing token public key: %v", err)
		}
		mx.Use(authn.NewMiddleware(authn.Config{PublicKey: key, Issuer: cfg.TokenIssuer, Audience: cfg.TokenAudience}))
	} else {
		logging.Default().Warnln("QVARN_TOKEN_PUBLIC_KEY not set: running with no bearer-token verification")
	}

	handler := handlers.CompressHandler(handlers.CORS(
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "Revision", "Qvarn-Access-By"}),
	)(mx))

	logging.Default().Infoln("qvarnd listening on", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("qvarnd: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.MemoryDatabase {
		return store.NewMemory(), nil
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.User)
	db, err := csql.OpenWithSchema(ctx, dsn, cfg.Database.Password, cfg.DatabaseSchema)
	if err != nil {
		return nil, err
	}
	pg := store.NewPostgres(db, []string{"obj_id", "subpath"})
	if err := pg.CreateSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func parseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("qvarnd: invalid PEM for token public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("qvarnd: token public key is not an RSA key")
	}
	return key, nil
}
