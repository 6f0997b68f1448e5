package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// ErrSignupNotSupported indicates that signup is not supported.
var ErrSignupNotSupported = errors.New("signup not supported")

func (c *Coordinator) authFlow() auth.Flow {
	return auth.NewFlow(c, auth.SendCodeOptions{})
}

func (c *Coordinator) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter code: ")

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(code), nil
}

func (c *Coordinator) Phone(ctx context.Context) (string, error) {
	var phone string

	var err error

	if c.cfg.TGPhone != "" {
		phone = c.cfg.TGPhone
	} else {
		fmt.Print("Enter phone: ")

		phone, err = bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", err
		}
	}

	phone = sanitizePhone(phone)
	c.logger.Info().Str("phone", maskPhone(phone)).Msg("using phone number")

	return phone, nil
}

func (c *Coordinator) Password(ctx context.Context) (string, error) {
	var password string

	var err error

	if c.cfg.TG2FAPassword != "" {
		password = c.cfg.TG2FAPassword
	} else {
		fmt.Print("Enter 2FA password: ")

		password, err = bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", err
		}
	}

	return strings.TrimSpace(password), nil
}

func (c *Coordinator) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (c *Coordinator) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignupNotSupported
}

func sanitizePhone(phone string) string {
	var sb strings.Builder

	phone = strings.TrimSpace(phone)

	if strings.HasPrefix(phone, "+") {
		sb.WriteByte('+')

		phone = phone[1:]
	}

	for _, char := range phone {
		if char >= '0' && char <= '9' {
			sb.WriteRune(char)
		}
	}

	return sb.String()
}

func maskPhone(phone string) string {
	if len(phone) < 7 {
		return "****"
	}

	return phone[:3] + "****" + phone[len(phone)-2:]
}
