package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(WhatsApp{}))
	assert.Error(t, r.Register(WhatsApp{}), "duplicate channel")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(Plain{ChannelType: "  "}))

	s, ok := r.Get("WhatsApp")
	assert.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, "whatsapp", s.Channel())
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	assert.True(t, r.HasAlternateForm("whatsapp"))
	assert.False(t, r.HasAlternateForm("telegram"))
	assert.False(t, r.HasAlternateForm("discord"))
	assert.False(t, r.HasAlternateForm("unknown"))
}

func TestWhatsAppClassification(t *testing.T) {
	s := WhatsApp{}

	assert.True(t, s.IsAlternate("123456789@lid"))
	assert.False(t, s.IsAlternate("5511999999999@s.whatsapp.net"))

	assert.True(t, s.IsCanonical("5511999999999@s.whatsapp.net"))
	assert.True(t, s.IsCanonical("123-456@g.us"))
	assert.False(t, s.IsCanonical("123456789@lid"))
}

func TestToUserJID(t *testing.T) {
	assert.Equal(t, "1234567890@s.whatsapp.net", ToUserJID("+1 (234) 567-890"))
	assert.Equal(t, "1234567890@s.whatsapp.net", ToUserJID("1234567890@s.whatsapp.net"))
	assert.Equal(t, "123456789@lid", ToUserJID("123456789@lid"), "existing suffix untouched")
}

func TestToGroupJID(t *testing.T) {
	assert.Equal(t, "123-456@g.us", ToGroupJID("123-456"))
	assert.Equal(t, "123-456@g.us", ToGroupJID("123-456@g.us"))
}

func TestExtractPhone(t *testing.T) {
	assert.Equal(t, "5511999999999", ExtractPhone("5511999999999@s.whatsapp.net"))
	assert.Equal(t, "", ExtractPhone("123-456@g.us"))
}

func TestResolveToUserJID(t *testing.T) {
	phone := "5511999999999@s.whatsapp.net"
	lid := "98765@lid"

	assert.Equal(t, "", ResolveToUserJID("", "", nil))
	assert.Equal(t, phone, ResolveToUserJID(phone, "", nil), "canonical passes through")
	assert.Equal(t, phone, ResolveToUserJID(lid, phone, nil), "alt preferred")

	lookup := func(id string) (string, bool) {
		if id == lid {
			return phone, true
		}
		return "", false
	}
	assert.Equal(t, phone, ResolveToUserJID(lid, "", lookup))
	assert.Equal(t, lid, ResolveToUserJID(lid, "", nil), "unresolvable lid unchanged")
}
