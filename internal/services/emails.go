package services

import (
	"fmt"
	"html"
	"strings"

	"pharmacy/internal/models"
)

func paragraph(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("<p>")
		b.WriteString(l)
		b.WriteString("</p>")
	}
	return b.String()
}

func orderPlacedEmail(user *models.User, order *models.Order) Message {
	rows := make([]string, 0, len(order.Lines))
	for _, l := range order.Lines {
		rows = append(rows, fmt.Sprintf("%s x %d = %s", html.EscapeString(l.ProductName), l.Quantity, l.LineTotal.StringFixed(3)))
	}
	return Message{
		To:      user.Email,
		Subject: "Order " + shortID(order.ID) + " received",
		Body: paragraph(
			"Hello "+html.EscapeString(user.FullName())+",",
			"We received your order "+shortID(order.ID)+".",
			strings.Join(rows, "<br>"),
			fmt.Sprintf("Delivery fee: %s %s<br>Total: %s %s",
				order.DeliveryFee.StringFixed(3), order.Currency, order.Total.StringFixed(3), order.Currency),
		),
		Kind: KindOrderPlaced,
	}
}

func orderStatusEmail(user *models.User, order *models.Order, status string) Message {
	return Message{
		To:      user.Email,
		Subject: "Order " + shortID(order.ID) + " is " + strings.ReplaceAll(status, "_", " "),
		Body: paragraph(
			"Hello "+html.EscapeString(user.FullName())+",",
			"Your order "+shortID(order.ID)+" is now "+strings.ReplaceAll(status, "_", " ")+".",
		),
		Kind: KindOrderStatus,
	}
}

func prescriptionReviewedEmail(user *models.User, req *models.PrescriptionRequest) Message {
	body := "Your prescription " + shortID(req.ID) + " was approved and can be used until " + req.ExpiresAt.Format("2 Jan 2006") + "."
	if req.Status == models.PrescriptionRejected {
		body = "Your prescription " + shortID(req.ID) + " was rejected."
		if req.RejectionReason != "" {
			body += " Reason: " + html.EscapeString(req.RejectionReason)
		}
	}
	return Message{
		To:      user.Email,
		Subject: "Prescription " + req.Status,
		Body:    paragraph("Hello "+html.EscapeString(user.FullName())+",", body),
		Kind:    KindPrescriptionReviewed,
	}
}

func prescriptionExpiredEmail(user *models.User, req *models.PrescriptionRequest) Message {
	return Message{
		To:      user.Email,
		Subject: "Prescription expired",
		Body: paragraph(
			"Hello "+html.EscapeString(user.FullName())+",",
			"Your prescription "+shortID(req.ID)+" has expired. Please submit a new one to keep ordering prescribed items.",
		),
		Kind: KindPrescriptionExpired,
	}
}

func planReminderEmail(user *models.User, plan *models.PrescriptionPlan, item *models.PlanItem, product *models.Product) Message {
	name := item.ProductID
	if product != nil {
		name = product.Name
	}
	return Message{
		To:      user.Email,
		Subject: "Refill reminder: " + name,
		Body: paragraph(
			"Hello "+html.EscapeString(user.FullName())+",",
			fmt.Sprintf("Your %s plan item %s is due on %s.", html.EscapeString(plan.Name), html.EscapeString(name), item.NextDueAt.Format("2 Jan 2006")),
		),
		Kind: KindPlanReminder,
	}
}

func reorderEmail(supplier *models.Supplier, branch *models.Branch, product *models.Product, qty int) Message {
	return Message{
		To:      supplier.Email,
		Subject: "Reorder request: " + product.Name,
		Body: paragraph(
			"Hello "+html.EscapeString(supplier.ContactName)+",",
			fmt.Sprintf("Please deliver %d units of %s to %s.", qty, html.EscapeString(product.Name), html.EscapeString(branch.Name)),
		),
		Kind: KindReorder,
	}
}

func passwordResetEmail(user *models.User, link string) Message {
	return Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body: paragraph(
			"Hello "+html.EscapeString(user.FullName())+",",
			`Use <a href="`+html.EscapeString(link)+`">this link</a> within one hour to choose a new password.`,
			"If you did not ask for this, ignore this email.",
		),
		Kind: KindPasswordReset,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}
