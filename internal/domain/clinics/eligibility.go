package clinics

import "strings"

// Channel identifica un medio de contacto para el broadcast.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// ContactPoint es un par (canal, dirección) contactable de una clínica.
type ContactPoint struct {
	Channel Channel
	Address string
}

// BroadcastEligible: activa y con al menos un canal contactable.
// Es el único filtro que aplica el broadcast dirigido (targeted); una
// selección explícita no saltea elegibilidad, solo el ranking.
func BroadcastEligible(c Clinic) bool {
	if c.Status != StatusActive {
		return false
	}
	return strings.TrimSpace(c.WhatsApp) != "" || strings.TrimSpace(c.Email) != ""
}

// QuickBroadcastEligible: elegible para el broadcast rápido a la red de
// partners 24h. Exige además partner + 24h + disponible.
func QuickBroadcastEligible(c Clinic) bool {
	return BroadcastEligible(c) && c.IsSupportHospital && c.Is24Hour && c.IsAvailable
}

// ContactPoints devuelve los canales contactables en orden fijo:
// whatsapp primero, después email. El orden define el orden de creación
// de Messages por clínica.
func ContactPoints(c Clinic) []ContactPoint {
	out := make([]ContactPoint, 0, 2)
	if wa := strings.TrimSpace(c.WhatsApp); wa != "" {
		out = append(out, ContactPoint{Channel: ChannelWhatsApp, Address: wa})
	}
	if em := strings.TrimSpace(c.Email); em != "" {
		out = append(out, ContactPoint{Channel: ChannelEmail, Address: em})
	}
	return out
}
