package router

import (
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/adapters/channels/email"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/adapters/channels/logsink"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/adapters/channels/whatsapp"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/adapters/channels/whatsappamqp"
	mem "github.com/PetSOS-teamsite/petsos-sub001/internal/adapters/storage/memory"
	pg "github.com/PetSOS-teamsite/petsos-sub001/internal/adapters/storage/postgres"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/broadcast"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/emergencies"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/middleware"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/logger"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	Log logger.Logger

	// Opcional: si viene, usa Postgres. Si no, intenta DB_DSN y cae a
	// in-memory (modo dev).
	DB *sql.DB

	// Opcional: senders por canal. Los que falten se resuelven por env
	// y caen al logsink en dev.
	Senders map[clinics.Channel]channels.Sender
}

// Build arma el router y el sweeper. El caller es dueño del sweeper
// (Start/Stop) para poder cortarlo en el shutdown.
func Build(opts Options) (http.Handler, *broadcast.Sweeper) {
	log := opts.Log
	if log == nil {
		log = logger.NewFromEnv()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLog(log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var (
		clinicRepo  clinics.Repository
		requestRepo emergencies.Repository
		messageRepo broadcast.MessageRepository
	)

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				db = opened
			} else {
				log.Warn("postgres unavailable, falling back to memory", map[string]any{"error": err.Error()})
			}
		}
	}

	if db != nil {
		clinicRepo = pg.NewClinicsRepo(db)
		requestRepo = pg.NewEmergenciesRepo(db)
		messageRepo = pg.NewMessagesRepo(db)
	} else {
		clinicRepo = mem.NewClinicsRepo()
		requestRepo = mem.NewEmergenciesRepo()
		messageRepo = mem.NewMessagesRepo()
	}

	senders := buildSenders(opts.Senders, log)

	dispatcher := broadcast.NewDispatcher(messageRepo, senders, broadcast.DispatcherOptions{
		MaxInflight: envInt("BROADCAST_MAX_INFLIGHT", 0),
		Log:         log,
	})

	sweeper := broadcast.NewSweeper(messageRepo, dispatcher, broadcast.SweeperOptions{
		Interval:   envDuration("SWEEP_INTERVAL", 0),
		MaxRetries: envInt("BROADCAST_MAX_RETRIES", 0),
		Log:        log,
	})

	// Services por módulo
	clinicsSvc := clinics.NewService(clinicRepo)
	requestsSvc := emergencies.NewService(requestRepo)
	broadcastSvc := broadcast.NewService(requestRepo, clinicRepo, messageRepo, dispatcher, broadcast.ServiceOptions{
		MaxQuickRecipients: envInt("QUICK_BROADCAST_MAX_RECIPIENTS", 0),
		Log:                log,
	})

	// Rutas por módulo
	clinics.RegisterRoutes(r, clinicsSvc)
	emergencies.RegisterRoutes(r, requestsSvc)
	broadcast.RegisterRoutes(r, broadcastSvc)

	return r, sweeper
}

// buildSenders resuelve un sender por canal: lo que venga en opts gana;
// después env (AMQP antes que HTTP para whatsapp); último recurso logsink.
func buildSenders(explicit map[clinics.Channel]channels.Sender, log logger.Logger) map[clinics.Channel]channels.Sender {
	senders := make(map[clinics.Channel]channels.Sender, 2)
	for ch, s := range explicit {
		senders[ch] = s
	}

	if _, ok := senders[clinics.ChannelWhatsApp]; !ok {
		senders[clinics.ChannelWhatsApp] = whatsappSenderFromEnv(log)
	}
	if _, ok := senders[clinics.ChannelEmail]; !ok {
		senders[clinics.ChannelEmail] = emailSenderFromEnv(log)
	}
	return senders
}

func whatsappSenderFromEnv(log logger.Logger) channels.Sender {
	if url := os.Getenv("WHATSAPP_AMQP_URL"); url != "" {
		pub, err := whatsappamqp.New(url, os.Getenv("WHATSAPP_AMQP_QUEUE"))
		if err == nil {
			log.Info("whatsapp channel: amqp", nil)
			return pub
		}
		log.Warn("whatsapp amqp unavailable", map[string]any{"error": err.Error()})
	}

	if base := os.Getenv("WHATSAPP_API_URL"); base != "" {
		client, err := whatsapp.New(whatsapp.Config{
			BaseURL: base,
			APIKey:  os.Getenv("WHATSAPP_API_KEY"),
		})
		if err == nil {
			log.Info("whatsapp channel: http bridge", nil)
			return client
		}
		log.Warn("whatsapp bridge misconfigured", map[string]any{"error": err.Error()})
	}

	log.Warn("whatsapp channel: logsink (dev mode)", nil)
	return logsink.New("whatsapp", log)
}

func emailSenderFromEnv(log logger.Logger) channels.Sender {
	if addr := os.Getenv("SMTP_ADDR"); addr != "" {
		s, err := email.New(email.Config{
			Addr:     addr,
			From:     os.Getenv("SMTP_FROM"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
		})
		if err == nil {
			log.Info("email channel: smtp", nil)
			return s
		}
		log.Warn("smtp misconfigured", map[string]any{"error": err.Error()})
	}

	log.Warn("email channel: logsink (dev mode)", nil)
	return logsink.New("email", log)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
