package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"loan-dash/internal/config"
	"loan-dash/internal/db"
	"loan-dash/internal/domain"
	"loan-dash/internal/identity"
	"loan-dash/internal/repository"
	"loan-dash/internal/service"
	"loan-dash/internal/session"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal(err)
	}

	tokens := identity.NewTokenIssuer(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		nil,
	)
	identitySvc := identity.NewService(logger, repository.NewPgIdentityAccountRepository(pool), tokens, nil)
	loader := service.NewProfileLoader(
		logger,
		repository.NewPgProfileRepository(pool),
		repository.NewPgPerformanceRepository(pool),
		repository.NewPgBadgeRepository(pool),
		repository.NewPgTaskRepository(pool),
		cfg.StarterBadgeID,
	)
	settings := service.NewSettingsService(logger, repository.NewPgSettingsRepository(pool), nil, cfg.DefaultAutoLogoutMinutes)

	machine := session.NewMachine(logger, identity.NewClient(identitySvc), loader, settings)
	defer machine.Teardown()
	machine.Initialize(ctx)

	states, cancel := machine.Subscribe()
	defer cancel()
	go printStates(states)

	for {
		fmt.Println("\n===== Sesión =====")
		fmt.Println("[r] Registrar cuenta   [l] Login   [o] Logout")
		fmt.Println("[e] Extender sesión    [a] Actividad")
		fmt.Println("[h] Ocultar pestaña    [v] Mostrar pestaña")
		fmt.Println("[s] Estado             [q] Salir")
		fmt.Print("Selecciona una opcion: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "r":
			email, password := askCredentials(reader)
			if _, err := identitySvc.Register(ctx, email, password); err != nil {
				fmt.Printf("Error registrando cuenta: %v\n", err)
			} else {
				fmt.Println("Cuenta creada.")
			}
		case "l":
			email, password := askCredentials(reader)
			if !machine.Login(ctx, email, password) {
				fmt.Println("Credenciales inválidas.")
			}
		case "o":
			machine.Logout(ctx)
		case "e":
			machine.ExtendSession()
		case "a":
			machine.RecordActivity(session.ActivityKeyDown)
		case "h":
			machine.SetVisibility(false)
		case "v":
			machine.SetVisibility(true)
		case "s":
			printState(machine.State())
			if next := machine.Timers().NextWarningAt(); !next.IsZero() {
				fmt.Printf("Próximo aviso: %s\n", next.Format(time.Kitchen))
			}
		case "q":
			return
		default:
			fmt.Println("Opción inválida.")
		}
	}
}

func askCredentials(reader *bufio.Reader) (string, string) {
	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	return strings.TrimSpace(email), strings.TrimSpace(password)
}

func printStates(states <-chan domain.AuthState) {
	for st := range states {
		if st.ShowSessionWarning {
			fmt.Println("\n!! Tu sesión expira en 5 minutos por inactividad. [e] para extender, [o] para salir.")
			continue
		}
		printState(st)
	}
}

func printState(st domain.AuthState) {
	if st.User == nil {
		fmt.Printf("[%s] sin usuario (loading=%v)\n", st.Status, st.IsLoading)
		return
	}
	fmt.Printf("[%s] %s <%s> rol=%s\n", st.Status, st.User.Name, st.User.Email, st.User.InternalRole)
}
