package auth

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// RegisterAuthRoutes mounts the auth endpoints on app.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.Register).Name("auth.register")
	app.Post(controller.Routes.Login, controller.Login).Name("auth.login")
	app.Post(controller.Routes.Logout, controller.Logout).Name("auth.logout")
	app.Post(controller.Routes.Refresh, controller.Refresh).Name("auth.refresh")
	app.Get(controller.Routes.Me, controller.Me).Name("auth.me")
	app.Post(controller.Routes.Verification, controller.RequestVerification).Name("auth.verification")
	app.Get(controller.Routes.Verify, controller.VerifyLink).Name("auth.verify.get")
	app.Post(controller.Routes.Verify, controller.VerifyEmail).Name("auth.verify.post")

	return controller
}

type AuthControllerRoutes struct {
	Register     string
	Login        string
	Logout       string
	Refresh      string
	Me           string
	Verification string
	Verify       string
}

type AuthController struct {
	Debug      bool
	Logger     Logger
	Service    *AuthService
	Routes     *AuthControllerRoutes
	AuthScheme string
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:     defLogger{},
		AuthScheme: "Bearer",
		Routes: &AuthControllerRoutes{
			Register:     "/register",
			Login:        "/login",
			Logout:       "/logout",
			Refresh:      "/refresh",
			Me:           "/me",
			Verification: "/verification",
			Verify:       "/verify",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Service == nil {
		panic("auth controller requires an AuthService")
	}

	return c
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

func WithAuthService(svc *AuthService) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Service = svc
		return ac
	}
}

func WithAuthScheme(scheme string) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if scheme != "" {
			ac.AuthScheme = scheme
		}
		return ac
	}
}

// WithVerifyRoute moves the verify endpoint. It must match the path signed
// links point at, relative to where the routes are mounted.
func WithVerifyRoute(route string) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if route != "" {
			ac.Routes.Verify = route
		}
		return ac
	}
}

func WithDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	account, err := a.Service.Register(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(account)
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	result, err := a.Service.Login(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (a *AuthController) Logout(c *fiber.Ctx) error {
	if err := a.Service.Logout(c.UserContext(), BearerToken(c, a.AuthScheme)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (a *AuthController) Refresh(c *fiber.Ctx) error {
	token := BearerToken(c, a.AuthScheme)
	if token == "" {
		return ErrInvalidToken
	}

	result, err := a.Service.Refresh(c.UserContext(), token)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (a *AuthController) Me(c *fiber.Ctx) error {
	account, err := a.Service.CurrentUser(c.UserContext(), BearerToken(c, a.AuthScheme))
	if err != nil {
		return err
	}
	return c.JSON(account)
}

func (a *AuthController) RequestVerification(c *fiber.Ctx) error {
	payload := new(VerificationRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	result, err := a.Service.RequestVerification(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// VerifyLink redeems a signed link followed from an email.
func (a *AuthController) VerifyLink(c *fiber.Ctx) error {
	params := new(LinkParams)
	if err := c.QueryParser(params); err != nil {
		a.Logger.Debug("verify link parse query", "error", err, "request_id", RequestID(c))
		return ErrLinkTampered
	}

	account, err := a.Service.VerifyEmail(c.UserContext(), VerifyEmailRequest{Params: params})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true, "account": account})
}

// VerifyEmail redeems a raw token or a full link posted as JSON or form data.
func (a *AuthController) VerifyEmail(c *fiber.Ctx) error {
	payload := new(VerifyEmailRequest)
	if err := a.bind(c, payload); err != nil {
		return err
	}

	account, err := a.Service.VerifyEmail(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true, "account": account})
}

func (a *AuthController) bind(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("parse payload", "path", c.Path(), "error", err, "request_id", RequestID(c))
		return NewValidationError(map[string]string{"form": "Failed to parse form"})
	}
	if a.Debug {
		a.Logger.Debug("bound payload", "path", c.Path(), "type", fmt.Sprintf("%T", payload), "request_id", RequestID(c))
	}
	return nil
}
