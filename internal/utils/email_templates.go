package utils

import "fmt"

// GenerateDisputeFiledHTML génère l'e-mail envoyé aux deux parties quand
// un litige est déposé
func GenerateDisputeFiledHTML(reasonCode string, amount float64, deadline string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Litige ouvert sur votre course</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">⚠️ Un litige a été ouvert sur votre course</h2>
		<p>Bonjour,</p>
		<p>Un litige vient d'être déposé concernant votre course.</p>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<tr>
				<td style="padding: 10px; border: 1px solid #ddd; font-weight: bold;">Motif</td>
				<td style="padding: 10px; border: 1px solid #ddd;">%s</td>
			</tr>
			<tr>
				<td style="padding: 10px; border: 1px solid #ddd; font-weight: bold;">Montant concerné</td>
				<td style="padding: 10px; border: 1px solid #ddd;">%.2f€</td>
			</tr>
			<tr>
				<td style="padding: 10px; border: 1px solid #ddd; font-weight: bold;">Traitement avant le</td>
				<td style="padding: 10px; border: 1px solid #ddd;">%s</td>
			</tr>
		</table>

		<p>Le paiement de la course est retenu le temps de l'examen. Notre
		équipe vous recontactera si des informations supplémentaires sont
		nécessaires.</p>

		<p style="margin-top: 30px; color: #555;">
			Cordialement,<br>
			<strong>L'équipe Koursa</strong>
		</p>
	</div>
</body>
</html>`, reasonCode, amount, deadline)
}

// GenerateDisputeResolvedHTML génère l'e-mail de clôture de litige
func GenerateDisputeResolvedHTML(decision string, refundAmount float64, resolution string) string {
	refundLine := ""
	if refundAmount > 0 {
		refundLine = fmt.Sprintf(`<p>Un remboursement de <strong>%.2f€</strong> a été émis vers votre moyen de paiement. Il apparaîtra sous 5 à 10 jours ouvrés.</p>`, refundAmount)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Litige clôturé</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">✅ Votre litige a été traité</h2>
		<p>Bonjour,</p>
		<p>Le litige concernant votre course a été clôturé avec la décision suivante : <strong>%s</strong>.</p>
		%s
		<p style="color: #555;">%s</p>

		<p style="margin-top: 30px; color: #555;">
			Cordialement,<br>
			<strong>L'équipe Koursa</strong>
		</p>
	</div>
</body>
</html>`, decision, refundLine, resolution)
}
